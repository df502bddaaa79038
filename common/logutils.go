package common

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ConfigureLogging sets up the standard logrus logger: LOG_FORMAT=json selects the json
// formatter, anything else the text formatter.
func ConfigureLogging() {
	logger := logrus.StandardLogger()
	logger.Out = os.Stdout
	if os.Getenv("LOG_FORMAT") == "json" {
		logger.Formatter = &logrus.JSONFormatter{}
	} else {
		logger.Formatter = &logrus.TextFormatter{}
	}
	if os.Getenv("GIN_MODE") == "release" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.AddHook(&DefaultFieldsHook{})
}

type DefaultFieldsHook struct {
}

func (hook *DefaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook *DefaultFieldsHook) Fire(e *logrus.Entry) error {
	e.Data["serviceName"] = GetServiceName()
	e.Data["serviceInstance"] = GetServiceInstance()
	return nil
}

func GetServiceName() string {
	if name := os.Getenv("SERVICE_NAME"); name != "" {
		return name
	}
	return "casework"
}

func GetServiceInstance() string {
	if instance := os.Getenv("SERVICE_INSTANCE"); instance != "" {
		return instance
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}
