// Package cameracanny captures camera frames, runs Canny edge detection on
// each one and saves the edge maps as numbered PGM files.
//
// The package holds the capture-and-process controller and the pieces it
// needs to be tested without hardware: run configuration, file sequencing,
// wall and CPU timing, and the end-of-run summary. Capture backends live in
// the capture and vision packages; the command-line front end is
// cmd/camera-canny.
//
// # Quick Start
//
//	cfg, err := cameracanny.ParseArgs([]string{"1.0", "0.1", "0.3", "n", "150", "out"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	runner, err := cameracanny.NewRunner(cfg, cameracanny.Collaborators{
//	    Source:    source,    // e.g. *capture.GstSource
//	    Converter: processor, // e.g. *vision.Processor
//	    Detector:  processor,
//	    Writer:    cameracanny.PGMWriter{},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	summary, err := runner.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cameracanny.WriteSummary(os.Stdout, summary)
//
// # Run Modes
//
//   - "s": run until the wall-clock time since start reaches the value (seconds)
//   - "n": run until the value number of frames has been saved
//
// Either mode also stops on a stop signal (ESC in the preview, SIGINT), on end
// of stream, or when a frame cannot be processed or saved. Stopping is always
// clean: the summary is produced and files already written stay on disk.
//
// # Output
//
// Frames are written as binary PGM (P5, maxval 255) named frame001.pgm,
// frame002.pgm and so on. Edge pixels are black (0) on a white (255)
// background. Numbering restarts at 1 on every run and overwrites existing
// files of the same name.
//
// # Timing
//
// Wall time comes from the monotonic clock. CPU time is the process CPU clock
// (CLOCK_PROCESS_CPUTIME_ID where available), read around capture and around
// edge detection so the summary can split cost by phase.
package cameracanny
