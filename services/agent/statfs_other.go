//go:build !linux

package agent

import "errors"

func statfs(string) (fsUsage, error) {
	return fsUsage{}, errors.New("filesystem usage is only collected on Linux")
}
