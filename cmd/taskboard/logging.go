package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fentz26/taskboard/internal/config"
)

// newLogger builds a logger at the configured level. When file is set the
// output goes to a rotating log file, otherwise to fallback.
func newLogger(c *config.Config, file string, fallback io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.Level())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if file == "" {
		log.SetOutput(fallback)
		return log
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		log.SetOutput(fallback)
		log.WithError(err).Warn("cannot create log dir, logging to stderr")
		return log
	}
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	})
	return log
}
