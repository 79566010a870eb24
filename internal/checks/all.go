package checks

import "kitchenctl/internal/kitchen"

const (
	DefaultMySQLService = "mysql"
	DefaultMySQLSocket  = "tcp://127.0.0.1:3306"
)

func All() []kitchen.Check {
	return []kitchen.Check{
		MySQLServiceRunning{Service: DefaultMySQLService},
		MySQLListening{Socket: DefaultMySQLSocket},
		SaltWorkdirOwned{},
	}
}
