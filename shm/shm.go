// Package shm implements wl_shm, the shared memory buffer interface,
// along with helpers for dealing with shared memory.
package shm

import (
	"os"

	"golang.org/x/sys/unix"
)

// Create returns a new anonymous shared memory file of the given size.
func Create(name string, size int64) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, err
	}

	file := os.NewFile(uintptr(fd), name)
	err = file.Truncate(size)
	if err != nil {
		file.Close()
		return nil, err
	}

	return file, nil
}

type Mmap []byte

func Map(file *os.File, size int, prot int) (mmap Mmap, err error) {
	sc, err := file.SyscallConn()
	if err != nil {
		return nil, err
	}

	cerr := sc.Control(func(fd uintptr) {
		m, merr := unix.Mmap(int(fd), 0, size, prot, unix.MAP_SHARED)
		mmap, err = Mmap(m), merr
	})
	if cerr != nil {
		return nil, cerr
	}

	return mmap, err
}

func (mmap Mmap) Unmap() error {
	if mmap == nil {
		return nil
	}
	return unix.Munmap(mmap)
}
