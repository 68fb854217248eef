package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// InitLogger sets up the shared application logger. Both binaries call this
// before anything else so every package logs through the same instance.
func InitLogger() {
	Log = logrus.New()

	// Set formatter to JSON
	Log.SetFormatter(&logrus.JSONFormatter{})

	// Set output to stdout (default)
	Log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)
}

// Logger returns the shared logger, initializing it on first use.
func Logger() *logrus.Logger {
	if Log == nil {
		InitLogger()
	}
	return Log
}
