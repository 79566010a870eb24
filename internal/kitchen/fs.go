package kitchen

import (
	"os"
	"path/filepath"
)

var kitchenMarkers = []string{".kitchen.yml", "kitchen.yml", ".kitchen.yaml", "kitchen.yaml"}

// FindKitchenRoot walks up from the working directory to the first directory
// holding a kitchen config, falling back to the working directory.
func FindKitchenRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return findKitchenRoot(wd)
}

func findKitchenRoot(start string) string {
	dir := start
	for {
		for _, m := range kitchenMarkers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return start
}
