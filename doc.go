// Package fbcore is the rendering and display core of an embedded graphics
// stack.
//
// It turns drawing requests (fill, blit, stretch-blit, textured triangles)
// into software-rasterized pixels or hardware command streams, and it
// schedules when rendered surfaces become visible on a screen output.
//
// # Architecture
//
// The core is split into three tightly coupled subsystems:
//
//   - [surface]: the buffer consistency manager. Each drawable Surface owns
//     a set of Buffers (front, back, idle, depth); each Buffer tracks a
//     system-memory and an accelerator-memory instance and keeps them
//     coherent under concurrent CPU and GPU access.
//   - [engine]: the command-buffer rendering engine. Producers record state
//     and primitives into RenderTasks; a fixed pool of workers replays them.
//   - [display]: the display task scheduler. DisplayTasks sequence buffer
//     flips and partial updates to a layer region, single, double or triple
//     buffered, mono or stereo.
//
// Supporting packages:
//
//   - [pixel]: pixel formats, palettes and raw-memory image adapters
//   - [pool]: reference counted allocations inside pluggable memory pools
//   - [gfx]: render state, clipping and the hardware driver boundary
//   - [task]: the four-phase task lifecycle shared by render and display tasks
//
// # Logging
//
// Nothing is logged by default. Use [SetLogger] to route diagnostics from
// every sub-package to a [log/slog] handler.
package fbcore
