// Copyright (c) 2024 The d2sqlite3 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracelog logs statement execution through logrus.
package tracelog

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weka-io/d2sqlite3/sqlh"
)

// Tracer logs every traced query to a logrus logger. Failed queries
// log at Warn level, the rest at Debug.
type Tracer struct {
	Logger *logrus.Logger // nil means logrus.StandardLogger

	// Slow, if non-zero, promotes queries that ran at least this
	// long to Info level.
	Slow time.Duration
}

var _ sqlh.Tracer = (*Tracer)(nil)

// New returns a Tracer writing to logger.
func New(logger *logrus.Logger) *Tracer {
	return &Tracer{Logger: logger}
}

func (t *Tracer) Query(id sqlh.TraceConnID, query string, duration time.Duration, err error) {
	logger := t.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithFields(logrus.Fields{
		"conn":     int32(id),
		"duration": duration,
		"query":    query,
	})
	switch {
	case err != nil:
		entry.WithError(err).Warn("query failed")
	case t.Slow > 0 && duration >= t.Slow:
		entry.Info("slow query")
	default:
		entry.Debug("query")
	}
}
