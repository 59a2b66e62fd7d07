// Package process runs the ffmpeg helpers behind the encoder, the camera
// source and the video decoder.
//
// A Process is started with the pipes its owner needs: standard input and
// extra descriptors (3, 4, ...) to feed raw media in, standard output to read
// raw media back, and standard error routed through a LogParser into a
// module logger.
//
// Stop closes the input pipes first so ffmpeg can flush and finalize its
// output, then sends SIGINT, then SIGKILL:
//
//	p, err := process.Start(process.Config{
//	    Name:  "encoder",
//	    Args:  args,
//	    Stdin: true,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer p.Stop()
//	p.Stdin().Write(pcm)
package process
