//go:build cgo

// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import "github.com/weka-io/d2sqlite3/csqlite"

func init() {
	engineOpen = csqlite.Open
	engineComplete = csqlite.Complete
	engineConfigure = csqlite.Configure
	engineVersion = csqlite.Version
}
