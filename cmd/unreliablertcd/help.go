package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagListenAddress string
	flagPublicAddress string
	flagHTTPAddress   string
	flagLogLevel      string
	flagHelp          bool
	flagVersion       bool
)

func init() {
	flag.StringVarP(&flagListenAddress, "listen", "l", ":9000", "UDP address to bind")
	flag.StringVarP(&flagPublicAddress, "public", "p", "", "Public UDP address to advertise in SDP answers (default: same as --listen)")
	flag.StringVarP(&flagHTTPAddress, "http", "a", ":8080", "HTTP address for the SDP offer endpoint")
	flag.StringVarP(&flagLogLevel, "log-level", "", "", "Default log level (overridden per-tag by LOGLEVEL)")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Unreliable WebRTC data-channel server

Usage: unreliablertcd [OPTION]...

Network:
  -l, --listen=ADDR      UDP address to bind (default: :9000)
  -p, --public=ADDR      Public UDP address advertised in SDP answers
  -a, --http=ADDR        HTTP address for the SDP offer endpoint (default: :8080)

Logging:
      --log-level=LEVEL  Default log level: error, warn, info, debug, trace

Miscellaneous:
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits

Please report bugs to: https://github.com/lanikai/unreliablertc/issues`

// versionString is the daemon's release identifier. The teacher generates this at
// build time via version.sh; this module has no release-tagging pipeline
// yet, so it is a constant until one exists.
const versionString = "unreliablertcd (development build)"

func version() {
	fmt.Println(versionString)
}

func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//          _ _       _      _        _
	//  _   _ _ __| (_)_ __| |_ __| |_ _ __| |_ ___
	// | | | | '__| | | '__| __/ _` | '__| __/ __|
	// | |_| | |  | | | |  | || (_| | |  | || (__
	//  \__,_|_|  |_|_|_|   \__\__,_|_|   \__\___|

	r.Printf(" _   _ ")
	y.Printf("_ __ ")
	b.Printf("_ __| |_ ")
	y.Println("___")

	r.Printf("| | | |")
	y.Printf("| '__|")
	b.Printf("| __| __|")
	y.Println("/ __|")

	r.Printf("| |_| |")
	y.Printf("| |   ")
	b.Printf("| |_| |_ ")
	y.Println("(__ ")

	r.Printf(" \\__,_|")
	y.Printf("|_|   ")
	b.Printf(" \\__|\\__|")
	y.Println("\\___|")

	fmt.Println(helpString)
}
