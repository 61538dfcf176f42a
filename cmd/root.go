package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kirsrus/diskimage/pkg/archive"
	"github.com/kirsrus/diskimage/pkg/builder"
	"github.com/kirsrus/diskimage/pkg/charset"
	"github.com/kirsrus/diskimage/pkg/disk"
	"github.com/kirsrus/diskimage/pkg/extract"
	"github.com/kirsrus/diskimage/pkg/logging"
	"github.com/kirsrus/diskimage/pkg/manifest"
	"github.com/kirsrus/diskimage/pkg/tools"
)

const (
	binName = "diskimage"
	product = "diskimage"

	// Seconds to wait after printing an error before exiting
	sleepBeforeErrorExit = 3

	// --extract value meaning every file
	extractAll = "*"
)

var (
	cfgFile   string
	globalLog *logrus.Logger

	gitVersion string
	gitCommit  string
	gitDate    string

	// Errors are reported through the log (true) or printed with their stack (false)
	onlyLog bool

	// Web page templates of the serve command
	templates Template

	hostFs = afero.NewOsFs()
)

var rootCmd = &cobra.Command{
	Use:   "diskimage [input]",
	Short: "Builds disk manifests from directories and archives and extracts them",
	Long: `diskimage reads a directory, a list of files, or an ARC/ZIP archive into a disk manifest,
which can be listed, saved as a JSON descriptor, or extracted back to the host. Extraction can
expand nested archives and convert text files and tokenized BASIC programs to host text.

Examples:

List the contents of an archive:
   diskimage --zip GAMES.ZIP --list

Show the archive table without decompressing anything:
   diskimage --arc UTILS.ARC --verbose=skip

Extract an archive found inside a self-extracting program, expanding nested archives:
   diskimage --arc PKG.EXE --extract --expand --normalize --extdir out

Write the manifest of a directory:
   diskimage --dir PCSIG-GAMES --label default --output games.json
`,
	Args:              cobra.MaximumNArgs(1),
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE:              rootRunE,
}

// Execute adds the child commands and runs the root command. It is called once by main.main().
func Execute(gitVersionIn string, gitCommitIn string, gitDateIn string, templatesIn Template) {
	gitVersion = gitVersionIn
	gitCommit = gitCommitIn
	gitDate = strings.ReplaceAll(gitDateIn, "T", " ")
	templates = templatesIn

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if onlyLog {
			if globalLog.Level > logrus.InfoLevel {
				globalLog.WithFields(map[string]interface{}{
					"stack": errors.ErrorStack(errors.Annotate(err, "end point")),
				}).Error(err.Error())
			} else {
				globalLog.Error(err.Error())
			}
		} else {
			// The first stack line repeats the error itself
			stack := strings.Split(fmt.Sprintf("%+v", errors.ErrorStack(errors.Trace(err))), "\n")
			if len(stack) > 0 && stack[0] == errors.Cause(err).Error() {
				stack = stack[1:]
			}
			for i := range stack {
				stack[i] = strings.Trim(stack[i], ": ")
			}

			fmt.Printf("ERROR: %s\nSTACK:\n  ", errors.Cause(err))
			fmt.Printf("%s\n\n", strings.Join(stack, "\n  "))
			time.Sleep(sleepBeforeErrorExit * time.Second)
		}
		os.Exit(1)
	}
}

func init() {
	initLogging()
	cobra.OnInitialize(initGlobalConfig)

	flags := rootCmd.PersistentFlags()
	flags.Bool("version", false, "program version")
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.diskimage.yaml)")
	flags.String("log", "", "log file")
	flags.String("level", "", "log level (debug|info|warn|error)")

	flags.String("dir", "", "build from a directory")
	flags.String("files", "", "build from a comma separated list of files")
	flags.String("arc", "", "build from an ARC archive")
	flags.String("zip", "", "build from a ZIP archive")
	flags.String("offset", "", "archive offset inside the file (ARC archives in .EXE files are located when empty)")
	flags.String("label", "", "volume label (none|default|LABEL)")
	flags.String("password", "", "password of garbled ARC archives")
	flags.Bool("normalize", false, "convert text files, and BASIC programs when extracting")
	flags.Int("maxfiles", builder.DefaultMaxFiles, "maximum number of directory entries to read")
	flags.String("verbose", "", "print the archive table (on|skip|NAME decompresses only NAME)")
	flags.Lookup("verbose").NoOptDefVal = "on"
	flags.String("extdir", "", "extraction directory, %d stands for the input's directory")

	local := rootCmd.Flags()
	local.Bool("list", false, "print a directory listing (default when no other action is given)")
	local.Bool("manifest", false, "print the JSON descriptor")
	local.String("output", "", "write the JSON descriptor to a file")
	local.String("extract", "", "extract every file, or only the files named NAME")
	local.Lookup("extract").NoOptDefVal = extractAll
	local.Bool("expand", false, "expand archives found while extracting")
	local.Bool("overwrite", false, "replace existing files while extracting")
	local.Bool("quiet", false, "suppress progress messages")

	cobra.CheckErr(viper.BindPFlags(flags))
	cobra.CheckErr(viper.BindPFlags(local))

	rootCmd.AddCommand(serveCmd)
}

// initGlobalConfig reads in config file and ENV variables if set.
func initGlobalConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".diskimage" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".diskimage")
	}

	viper.SetEnvPrefix(binName)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		_, _ = fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func initLogging() {
	// Consoles of Windows 7, 2008 and older have no colors
	coloredLog := true
	osName, osMajor, osMinor, _ := tools.OsVersion()
	if osName == "windows" && osMajor <= 6 && osMinor <= 1 {
		coloredLog = false
	}
	globalLog = logging.New(osName == "windows", coloredLog)
}

// setupLogging sends the log to stderr, stdout is left to listings and descriptors
func setupLogging(_ *cobra.Command, _ []string) error {
	onlyLog = true
	if err := logging.SetOutput(globalLog, os.Stderr, viper.GetString("log")); err != nil {
		globalLog.Warnf("cannot open log file: %s", err)
	}
	if err := logging.SetLevel(globalLog, viper.GetString("level")); err != nil {
		globalLog.Warn(err)
	}
	return nil
}

func banner(log *logrus.Logger, level logrus.Level, lines ...string) {
	commit := gitCommit
	if len(commit) > 7 {
		commit = commit[0:7]
	}
	text := append([]string{
		fmt.Sprintf("%s %s (%s) %s", product, strings.TrimSpace(gitVersion), commit, gitDate),
	}, lines...)
	for _, v := range tools.LogInfoWidget(text, "*") {
		log.Log(level, v)
	}
}

func rootRunE(cmd *cobra.Command, args []string) error {
	if viper.GetBool("version") {
		fmt.Printf("%s\n", strings.TrimSpace(gitVersion))
		return nil
	}

	log := globalLog
	ctx := cmd.Context()
	banner(log, logrus.DebugLevel)

	src, err := buildSource(ctx, args, log)
	if err != nil {
		return errors.Trace(err)
	}

	acted := false
	if viper.GetBool("manifest") {
		acted = true
		if err := writeDescriptor(ctx, src, os.Stdout, log); err != nil {
			return errors.Trace(err)
		}
	}

	if output := viper.GetString("output"); output != "" {
		acted = true
		f, err := hostFs.Create(output)
		if err != nil {
			return errors.Annotate(err, output)
		}
		err = writeDescriptor(ctx, src, f, log)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return errors.Annotate(err, output)
		}
		log.Infof("descriptor written to %s", output)
	}

	if name := viper.GetString("extract"); name != "" {
		acted = true
		if err := extractSource(ctx, src, name, log); err != nil {
			return errors.Trace(err)
		}
	}

	if viper.GetBool("list") || !acted {
		return errors.Trace(manifest.Listing(os.Stdout, src.entries, displayName))
	}
	return nil
}

// source is a built manifest and where it came from
type source struct {
	// input path, or the file list
	input string
	// name of the disk, used as the extraction folder
	name    string
	entries []manifest.Entry
	// entry paths are host paths and are made relative before extraction
	hostPaths bool
	// entries were read from a JSON descriptor and have no contents
	descriptor bool
}

// buildSource builds the manifest of the input selected by the flags or the positional argument
func buildSource(ctx context.Context, args []string, log *logrus.Logger) (*source, error) {
	b := builder.New(hostFs, log)
	opts := builder.Options{
		Label:     viper.GetString("label"),
		Normalize: viper.GetBool("normalize"),
		Budget:    builder.NewBudget(cast.ToInt(viper.Get("maxfiles"))),
	}

	switch {
	case viper.GetString("dir") != "":
		return fromDir(b, viper.GetString("dir"), opts)
	case viper.GetString("files") != "":
		list := viper.GetString("files")
		entries, err := b.FromFiles(list, opts)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &source{input: list, name: "files", entries: entries, hostPaths: true}, nil
	case viper.GetString("arc") != "":
		return fromArchive(ctx, b, viper.GetString("arc"), archive.KindARC, log)
	case viper.GetString("zip") != "":
		return fromArchive(ctx, b, viper.GetString("zip"), archive.KindZIP, log)
	case len(args) == 0:
		return nil, errors.Errorf("no input given, see '%s --help'", binName)
	}

	input := args[0]
	info, err := hostFs.Stat(input)
	if err != nil {
		return nil, errors.Annotate(err, input)
	}
	switch {
	case info.IsDir():
		return fromDir(b, input, opts)
	case strings.EqualFold(filepath.Ext(input), ".json"):
		return fromDescriptor(input)
	}
	return fromArchive(ctx, b, input, archive.KindUnknown, log)
}

func fromDir(b *builder.Builder, dir string, opts builder.Options) (*source, error) {
	entries, err := b.FromDir(dir, opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &source{input: dir, name: filepath.Base(filepath.Clean(dir)), entries: entries, hostPaths: true}, nil
}

func fromArchive(ctx context.Context, b *builder.Builder, name string, kind archive.Kind, log *logrus.Logger) (*source, error) {
	r, err := archive.Open(ctx, hostFs, name, archive.Options{
		Kind:     kind,
		Offset:   viper.GetString("offset"),
		Password: viper.GetString("password"),
	}, log)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()

	entries, err := b.FromArchive(ctx, r, builder.ParseVerbosity(viper.GetString("verbose")), os.Stdout)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &source{
		input:   name,
		name:    diskName(name),
		entries: builder.WithLabel(entries, name, viper.GetString("label"), ""),
	}, nil
}

func fromDescriptor(name string) (*source, error) {
	f, err := hostFs.Open(name)
	if err != nil {
		return nil, errors.Annotate(err, name)
	}
	defer f.Close()

	d, err := disk.ReadJSON(f)
	if err != nil {
		return nil, errors.Annotate(err, name)
	}
	return &source{input: name, name: diskName(name), entries: d.Entries, descriptor: true}, nil
}

func writeDescriptor(ctx context.Context, src *source, out io.Writer, log *logrus.Logger) error {
	if src.descriptor {
		return errors.Errorf("%s is already a descriptor", src.input)
	}
	entries := src.entries
	if src.hostPaths {
		entries = relativize(entries)
	}
	return disk.NewJSONWriter(out, log).Build(ctx, entries, disk.Params{})
}

func extractSource(ctx context.Context, src *source, name string, log *logrus.Logger) error {
	if src.descriptor {
		return errors.Errorf("%s has no file contents to extract", src.input)
	}

	dir := strings.ReplaceAll(viper.GetString("extdir"), "%d", filepath.Dir(src.input))
	engine := extract.New(hostFs, extract.Options{
		Overwrite: viper.GetBool("overwrite"),
		Quiet:     viper.GetBool("quiet"),
		Normalize: viper.GetBool("normalize"),
		Expand:    viper.GetBool("expand"),
		Password:  viper.GetString("password"),
		Verbose:   builder.ParseVerbosity(viper.GetString("verbose")),
		Out:       os.Stdout,
	}, log)

	entries := src.entries
	if src.hostPaths {
		entries = relativize(entries)
	}

	var (
		summary extract.Summary
		err     error
	)
	if name == extractAll {
		summary, err = engine.Extract(ctx, entries, filepath.Join(dir, src.name))
	} else {
		summary, err = engine.ExtractNamed(ctx, entries, dir, name)
	}
	if err != nil {
		return errors.Trace(err)
	}

	if !viper.GetBool("quiet") {
		log.Infof("%d file(s) and %d dir(s) extracted, %d archive(s) expanded, %d skipped, %d failed",
			summary.Files, summary.Dirs, summary.Expanded, summary.Skipped, summary.Failed)
	}
	return nil
}

// relativize makes every top-level entry (and its subtree) relative to its own host directory
func relativize(entries []manifest.Entry) []manifest.Entry {
	result := make([]manifest.Entry, 0, len(entries))
	for _, e := range entries {
		result = append(result, manifest.Rebase([]manifest.Entry{e}, filepath.Dir(e.Path))...)
	}
	return result
}

// diskName is the file name without its extension
func diskName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// displayName shows names read in CP437 as UTF-8
func displayName(e manifest.Entry) string {
	if e.NameEncoding == manifest.EncodingCP437 {
		return charset.Decode([]byte(e.Name), false)
	}
	return e.Name
}
