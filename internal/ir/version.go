package ir

// Version is the factset module version, reported by the CLI.
const Version = "0.1.0"
