package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "ts",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "msg",
			},
		})
		logger.SetLevel(logrus.InfoLevel)
	})
	return logger
}

// SetLevel adjusts the shared logger verbosity. Unknown names keep the
// current level and return the parse error.
func SetLevel(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	Logger().SetLevel(lvl)
	return nil
}

// LogRequest emits a structured log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	fields := make(logrus.Fields, len(entry))
	for k, v := range entry {
		fields[k] = v
	}
	Logger().WithFields(fields).Info("http request")
}
