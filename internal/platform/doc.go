// Package platform provides the per-operating-system loaders that sample
// processes and system aggregates for go-taskmon.
//
// # Architecture
//
// Every platform implements the Loader interface. A loader owns the
// reconciliation state for one sysinfo.Snapshot: it assigns internal process
// ids, moves vanished processes to the dead list and resolves the identity of
// each process once. Counters that are the same everywhere (memory in use,
// total CPU, network and disk throughput) come from gopsutil through a shared
// host sampler.
//
// # Usage
//
// Creating a loader for the current OS:
//
//	l, err := platform.New(platform.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Close()
//
//	snap := sysinfo.NewSnapshot(60)
//	if err := l.Init(ctx, snap); err != nil {
//	    log.Fatal(err)
//	}
//	if err := l.Update(ctx, snap); err != nil {
//	    log.Fatal(err)
//	}
//
// # Supported Platforms
//
//   - Linux, via the /proc filesystem (the root is configurable)
//   - Windows, via NtQuerySystemInformation and the process environment block
//
// # Thread Safety
//
// Loaders are driven from a single goroutine. Consumers must work on copies
// of the snapshot, never on the instance a loader is filling.
package platform
