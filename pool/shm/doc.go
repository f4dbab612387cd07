// Package shm provides a system memory pool backend on anonymous shared
// memory files.
//
// Every allocation is its own memfd mapped MAP_SHARED, so the file
// descriptor returned in the lock mapping can be passed to another
// process. The backend registers itself as "shm" and is only functional
// on Linux; elsewhere Init fails with pool.ErrUnsupported.
package shm

// Name is the registry name of the backend.
const Name = "shm"
