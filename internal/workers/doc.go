/*
Package workers sizes concurrency limits from the CPUs available to the
process.

runtime.NumCPU reports host CPUs, which overstates capacity inside a
container with a CPU limit. GOMAXPROCS follows the cgroup limit since Go
1.19, so all counts here derive from it.

The media server uses Encoders to size the global encoder semaphore: every
ffmpeg process is CPU bound, so the default allows one per CPU unless
MAX_ENCODERS overrides it.

	sem := semaphore.NewWeighted(int64(workers.Encoders(cfg.MaxEncoders)))
*/
package workers
