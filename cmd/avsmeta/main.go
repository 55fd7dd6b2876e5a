/*
DESCRIPTION
  avsmeta is a command line tool that inspects a media file or elementary
  stream and reports the AVS1/AVS1+/AVS2/AVS3 video and AV3A audio metadata
  it can find within it.

AUTHORS
  AVS Probe Contributors
*/

// Command avsmeta inspects MPEG-TS, ISO BMFF, and raw elementary stream
// inputs for AVS-family codec signaling and reports what it finds.
package main

import "os"

func main() {
	os.Exit(Execute())
}
