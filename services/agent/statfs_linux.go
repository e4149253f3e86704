//go:build linux

package agent

import "golang.org/x/sys/unix"

func statfs(path string) (fsUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return fsUsage{}, err
	}
	bsize := uint64(st.Bsize)
	return fsUsage{
		Total: st.Blocks * bsize,
		Free:  st.Bavail * bsize,
		Used:  (st.Blocks - st.Bfree) * bsize,
	}, nil
}
