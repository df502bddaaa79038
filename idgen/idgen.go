package idgen

import (
	"os"
	"strconv"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

// NewWorker creates an id worker. The machine id comes from SERVICE_MACHINE_ID, otherwise from
// the private ip address as sonyflake does by default. Hosts without a private ip address fall
// back to the process id.
func NewWorker() *sonyflake.Sonyflake {
	if os.Getenv("SERVICE_MACHINE_ID") != "" {
		return sonyflake.NewSonyflake(sonyflake.Settings{MachineID: configuredMachineID})
	}
	if worker := sonyflake.NewSonyflake(sonyflake.Settings{}); worker != nil {
		return worker
	}
	logrus.Warn("no private ip address for the id worker, falling back to the process id")
	return sonyflake.NewSonyflake(sonyflake.Settings{MachineID: processMachineID})
}

func NextID(idWorker *sonyflake.Sonyflake) types.ID {
	id, err := idWorker.NextID()
	if err != nil {
		panic(err)
	}
	return types.ID(id)
}

func configuredMachineID() (uint16, error) {
	id, err := strconv.ParseUint(os.Getenv("SERVICE_MACHINE_ID"), 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(id), nil
}

func processMachineID() (uint16, error) {
	return uint16(os.Getpid()), nil
}
