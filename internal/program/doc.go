// Package program runs external filter programs such as "gzip -d" or
// "zstd -19" on behalf of the program filter and compressor.
//
// A program reads its input on stdin and writes its result on stdout.
// Stderr is captured and reported in ProgramError when the program fails.
//
//	cmd := program.New(program.WithTimeout(time.Minute))
//	res, err := cmd.Run(bytes.NewReader(data), "gzip", "-d")
//
// Pipe and Start stream instead of buffering:
//
//	out, err := cmd.Pipe(compressed, "bzip2", "-d")
//	defer out.Close()
package program
