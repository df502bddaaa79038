package indices

import (
	"os"

	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultSyncSchedule = "0 0 23 * * ?"

// StartCron schedules nightly full runs. INDEX_SYNC_CRON overrides the schedule (with seconds).
func (x *Synchronizer) StartCron() (*cron.Cron, error) {
	spec := os.Getenv("INDEX_SYNC_CRON")
	if spec == "" {
		spec = defaultSyncSchedule
	}
	crontab := cron.New(cron.WithSeconds())
	if _, err := crontab.AddFunc(spec, func() {
		ran, err := x.runExclusive()
		if err != nil {
			logrus.Errorf("scheduled indices sync: %v", err)
		} else if !ran {
			logrus.Info("scheduled indices sync skipped, a run is active")
		}
	}); err != nil {
		return nil, err
	}
	crontab.Start()
	return crontab, nil
}
