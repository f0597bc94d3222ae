package cmd

// Version is the application version, overridable at build time:
//
//	go build -ldflags "-X github.com/zfault/droidpilot/cmd.Version=1.2.3"
var Version = "0.1.0"
