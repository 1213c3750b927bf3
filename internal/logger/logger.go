// Package logger provides the per-subsystem loggers shared across the
// module. Every subsystem gets its own tagged entry off a single
// underlying logrus.Logger so log lines can be filtered by subsystem
// without standing up separate files.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

var (
	AppLog     *logrus.Entry
	EventLog   *logrus.Entry
	EpdgLog    *logrus.Entry
	ErrLog     *logrus.Entry
	TunnelLog  *logrus.Entry
	SurfaceLog *logrus.Entry
)

func init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	AppLog = log.WithField("subsystem", "app")
	EventLog = log.WithField("subsystem", "eventbus")
	EpdgLog = log.WithField("subsystem", "epdg")
	ErrLog = log.WithField("subsystem", "errorpolicy")
	TunnelLog = log.WithField("subsystem", "tunnel")
	SurfaceLog = log.WithField("subsystem", "surface")
}

// SetLevel adjusts the verbosity of every subsystem logger at once.
func SetLevel(level logrus.Level) {
	log.SetLevel(level)
}
