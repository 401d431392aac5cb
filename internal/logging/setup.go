/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package logging sets up structured logging: logrus as the facade,
// lumberjack for rotation when writing to a file instead of stdout.
package logging

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFileName = "bulkscan.log"

// RotateArgs configures lumberjack's log rotation.
type RotateArgs struct {
	MaxSize    int
	MaxBackups int
	MaxAge     int
	LocalTime  bool
	Compress   bool
}

// Setup configures the global logrus logger: leveled, optionally rotated to
// logDir/bulkscan.log, or to stdout when toStdout is set.
func Setup(level string, toStdout bool, logDir string, rotate *RotateArgs) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", level)
	}
	logrus.SetLevel(lvl)

	if toStdout {
		logrus.SetOutput(os.Stdout)
	} else {
		if rotate == nil {
			return errors.New("rotate args are required when logging to a file")
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return errors.Wrapf(err, "create log dir %q", logDir)
		}
		logrus.SetOutput(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, defaultLogFileName),
			MaxSize:    rotate.MaxSize,
			MaxBackups: rotate.MaxBackups,
			MaxAge:     rotate.MaxAge,
			Compress:   rotate.Compress,
			LocalTime:  rotate.LocalTime,
		})
	}

	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}
