package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Category loggers. They are usable before Setup runs; Setup only changes the
// level, formatter and output of the standard logger they wrap.
var (
	HTTPLog  = logrus.WithField("category", "http")
	DBLog    = logrus.WithField("category", "database")
	JudgeLog = logrus.WithField("category", "judge")
	BoardLog = logrus.WithField("category", "leaderboard")
	QueueLog = logrus.WithField("category", "queue")
)

func Setup(level, format string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	logrus.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Writer exposes the standard logger as an io.Writer at info level, for
// libraries that want a *log.Logger.
func Writer() *io.PipeWriter {
	return logrus.StandardLogger().WriterLevel(logrus.InfoLevel)
}
