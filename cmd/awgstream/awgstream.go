package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/ATaylorCEngFIET/awgstream"
	"github.com/ATaylorCEngFIET/awgstream/llfifo"
	"github.com/sbinet/npyio"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var githash = "githash not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	// Create directory <path>, if needed
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		err2 := os.MkdirAll(dir, 0775)
		if err2 != nil {
			return "", err2
		}
	}

	// Create an empty file path/filename, if it doesn't exist.
	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper sets up the viper configuration manager: says where to find
// config files and the filename and suffix. Sets some defaults.
func setupViper() error {
	viper.SetDefault("Verbose", false)
	viper.SetDefault("NSamples", awgstream.NumSamples)
	viper.SetDefault("DevNum", 0)
	viper.SetDefault("StatusPort", awgstream.Ports.Status)

	HOME, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("Error finding User Home Dir: %s\n", err)
	}
	dotAwgstream := filepath.Join(HOME, ".awgstream")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotAwgstream, filename+suffix); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/awgstream"))
	viper.AddConfigPath(dotAwgstream)
	viper.AddConfigPath(".")
	err = viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	probFile, err := os.OpenFile(pfname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		msg := fmt.Sprintf("Could not open log file '%s'", pfname)
		panic(msg)
	}
	probLogger := log.New(probFile, "", log.LstdFlags)
	probLogger.SetOutput(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	return probLogger
}

// dumpWaveform writes the generated buffer to filename in npy format, so the
// pattern can be checked offline against what a logic analyzer captured.
func dumpWaveform(filename string, buffer []uint32) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return npyio.Write(f, buffer)
}

func main() {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	awgstream.Build.Date = buildDate
	awgstream.Build.Githash = githash
	awgstream.Build.Summary = fmt.Sprintf("AWGSTREAM version %s (git commit %s)",
		awgstream.Build.Version, githash)
	if host, err := os.Hostname(); err == nil {
		awgstream.Build.Host = host
	} else {
		awgstream.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	simulate := flag.Bool("simulate", false, "stream into a simulated FIFO instead of hardware")
	dumpname := flag.String("dump", "", "write the generated waveform to this file (npy format)")
	wave := flag.String("wave", "ramp", "waveform shape: ramp, triangle, or sine")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is AWGSTREAM version %s\n", awgstream.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		os.Exit(0)
	}

	banner := fmt.Sprintf("\n--- AXI Stream FIFO ramp wave test, AWGSTREAM version %s (git commit %s) ---\n",
		awgstream.Build.Version, githash)
	fmt.Print(banner)

	// Start logging problems to a rotated log file.
	HOME, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(HOME, ".awgstream", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	awgstream.ProblemLogger = startLogger(problemname)
	fmt.Printf("Logging problems to %s\n\n", problemname)

	// Find config file, creating it if needed, and read it.
	if err := setupViper(); err != nil {
		panic(err)
	}

	nsamples := viper.GetInt("NSamples")
	buffer := make([]uint32, nsamples)
	fmt.Printf("Generating %s wave pattern (%d samples)...\n", *wave, nsamples)
	switch *wave {
	case "ramp":
		err = awgstream.GenerateRamp(buffer)
	case "triangle":
		err = awgstream.GenerateTriangle(buffer)
	case "sine":
		err = awgstream.GenerateSine(buffer)
	default:
		err = fmt.Errorf("unknown waveform shape %q", *wave)
	}
	if err != nil {
		awgstream.ProblemLogger.Print(err)
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
	if *dumpname != "" {
		if err := dumpWaveform(*dumpname, buffer); err != nil {
			awgstream.ProblemLogger.Printf("could not dump waveform to %s: %s", *dumpname, err)
		} else {
			fmt.Printf("Wrote waveform to %s\n", *dumpname)
		}
	}

	var card llfifo.Fifoer
	if *simulate {
		card, err = llfifo.NewNoHardware(2 * nsamples)
	} else {
		card, err = llfifo.NewLlFifo(viper.GetInt("DevNum"))
	}
	if err != nil {
		awgstream.ProblemLogger.Print(err)
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
	defer card.Close()

	sc, err := awgstream.NewStreamController(card, buffer)
	if err != nil {
		awgstream.ProblemLogger.Print(err)
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}

	abort := make(chan struct{})
	updates := make(chan awgstream.StatusUpdate, 16)
	sc.SetUpdateChannel(updates)
	go awgstream.RunMonitor(updates, abort, viper.GetInt("StatusPort"))

	interruptCatcher := make(chan os.Signal, 1)
	signal.Notify(interruptCatcher, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interruptCatcher
		close(abort)
	}()

	if err := sc.Prepare(); err != nil {
		awgstream.ProblemLogger.Printf("run %s: could not prepare FIFO: %s", sc.RunID(), err)
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("Streaming %d-word frames continuously (run %s). Interrupt to stop.\n",
		nsamples, sc.RunID())
	if err := sc.Stream(abort); err != nil {
		awgstream.ProblemLogger.Printf("run %s failed after %d frames: %s",
			sc.RunID(), sc.FramesSent(), err)
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("Streaming stopped after %d frames.\n", sc.FramesSent())
}
