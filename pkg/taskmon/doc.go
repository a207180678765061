// Package taskmon provides the public API for embedding the go-taskmon
// process sampler. An instance loads a configuration, samples processes and
// system counters on a fixed cadence and exposes the latest snapshot.
//
// # Basic Usage
//
//	m, err := taskmon.New("/etc/taskmon.yaml", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := m.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer m.Stop()
//
//	snap := m.Snapshot()
//	for _, p := range snap.Processes {
//		fmt.Println(p.PID, p.FileName, taskmon.Percent(p.CPUUsage.Newest()))
//	}
//
// # Configuration Sources
//
//   - Disk file: [New] loads a Lua or YAML file
//   - Embedded FS: [NewFromFS] loads from an [io/fs.FS]
//   - io.Reader: [NewFromReader] for generated configurations
//   - Value: [NewFromConfig] for a Config built in code
//
// # Consumers
//
// A [Consumer] registered through [Options] receives a private copy of the
// snapshot after every cycle. Returning true from HasTerminated stops the
// instance.
//
// # Error Handling
//
// Cycle failures are reported through [ErrorHandler]. The handler is called
// asynchronously; do not block in it.
package taskmon
