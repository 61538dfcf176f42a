package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// LogrusContextHook adds the caller position to every entry as the "file" field
type LogrusContextHook struct{}

// Levels returns every level
func (hook LogrusContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire walks up the stack to the first frame outside logrus and the hook itself and records
// its file name and line
func (hook LogrusContextHook) Fire(entry *logrus.Entry) error {
mainloop:
	for i := 0; ; i++ {
		if pc, file, line, ok := runtime.Caller(i); ok {
			funcName := path.Base(runtime.FuncForPC(pc).Name())

			if strings.Contains(funcName, ".LogrusContextHook.") {
				continue
			}

			for _, v := range []string{"LogrusContextHook.", "logrus.", "runtime.", "testing."} {
				if strings.HasPrefix(funcName, v) {
					continue mainloop
				}
			}

			entry.Data["file"] = fmt.Sprintf("%s:%d", path.Base(file), line)
			break
		} else {
			break
		}
	}

	return nil
}

// New creates a logger with output discarded until SetOutput. Windows consoles get the plain
// logrus text formatter, everything else the prefixed one.
func New(windows, colored bool) *logrus.Logger {
	log := logrus.New()
	log.Level = logrus.InfoLevel
	log.Out = io.Discard

	if windows {
		log.Formatter = &logrus.TextFormatter{
			ForceColors: colored,
		}
	} else {
		log.Formatter = &prefixed.TextFormatter{
			DisableColors: !colored,
		}
	}
	log.AddHook(LogrusContextHook{})
	return log
}

// SetOutput sends the log to out and, if logFile is set, appends it to that file as well. Colors
// are turned off when writing to a file.
func SetOutput(log *logrus.Logger, out io.Writer, logFile string) error {
	log.Out = out
	if logFile == "" {
		return nil
	}

	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return errors.Annotate(err, logFile)
	}
	switch formatter := log.Formatter.(type) {
	case *prefixed.TextFormatter:
		formatter.ForceColors = false
		formatter.DisableColors = true
	case *logrus.TextFormatter:
		formatter.ForceColors = false
		formatter.DisableColors = true
	}
	log.Out = io.MultiWriter(out, f)
	return nil
}

// SetLevel parses level ("" keeps the current one). Above info the prefixed formatter drops the
// full timestamp.
func SetLevel(log *logrus.Logger, level string) error {
	if level != "" {
		l, err := logrus.ParseLevel(level)
		if err != nil {
			return errors.Annotatef(err, "log level '%s'", level)
		}
		log.Level = l
	}
	if formatter, ok := log.Formatter.(*prefixed.TextFormatter); ok && log.Level > logrus.InfoLevel {
		formatter.FullTimestamp = false
	}
	return nil
}
