// eseq_tool converts Yamaha Disklavier ESEQ/FIL files to standard MIDI and
// post-processes MIDI libraries: merging multi-track files to type 0,
// repairing corrupted key signatures, and tagging files with XF "solo"
// metadata.
package main

func main() {
	Execute()
}
