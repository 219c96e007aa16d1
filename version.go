package lokilog

// Version is reported in the User-Agent of push requests and by the CLI.
var Version = "0.1.0"
