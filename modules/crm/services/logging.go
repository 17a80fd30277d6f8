package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
)

// loggerFor prefers the logger carried by ctx over the service default.
func loggerFor(ctx context.Context, fallback *logrus.Entry) *logrus.Entry {
	if l := composables.UseLogger(ctx); l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func logWithFields(ctx context.Context, fallback *logrus.Entry, level logrus.Level, msg string, fields logrus.Fields) {
	loggerFor(ctx, fallback).WithFields(fields).Log(level, msg)
}
