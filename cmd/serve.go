package cmd

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thoas/go-funk"
	ginlogrus "github.com/toorop/gin-logrus"

	"github.com/kirsrus/diskimage/pkg/disk"
	"github.com/kirsrus/diskimage/pkg/manifest"
)

const (
	defaultPort = 4309

	// Time given to open requests when the server stops
	shutdownTimeout = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve [input]",
	Short: "Serves the manifest and its files over HTTP",
	Long: `serve builds the manifest the same way the root command does and publishes it: a summary page,
a browsable file tree with downloads, and the JSON descriptor at /manifest.json. With --extdir set,
that directory is served under /static/.`,
	Args: cobra.MaximumNArgs(1),
	RunE: serveRunE,
}

func init() {
	serveCmd.Flags().Int("port", defaultPort, "web server port")
	cobra.CheckErr(viper.BindPFlag("port", serveCmd.Flags().Lookup("port")))
}

func serveRunE(cmd *cobra.Command, args []string) error {
	log := globalLog
	ctx := cmd.Context()

	webPort := cast.ToInt(viper.Get("port"))
	if webPort <= 0 || webPort > 65535 {
		return errors.Errorf("invalid web server port '%v'", viper.Get("port"))
	}

	src, err := buildSource(ctx, args, log)
	if err != nil {
		return errors.Trace(err)
	}

	staticDir := viper.GetString("extdir")
	if staticDir != "" {
		staticDir = strings.ReplaceAll(staticDir, "%d", filepath.Dir(src.input))
		log.Infof("static files directory: %s", staticDir)
	}

	gin.SetMode(gin.ReleaseMode)
	webRouter, err := newRouter(src, templates, staticDir, log)
	if err != nil {
		return errors.Trace(err)
	}

	urls, err := localURLs(webPort)
	if err != nil {
		return errors.Trace(err)
	}
	banner(log, logrus.InfoLevel, append([]string{
		"",
		fmt.Sprintf("Serving %s", src.input),
		"",
		"Web interface:",
		"",
	}, urls...)...)

	return errors.Trace(listen(ctx, &http.Server{
		Addr:    fmt.Sprintf(":%d", webPort),
		Handler: webRouter,
	}, log))
}

// listen runs server until it fails or ctx is done
func listen(ctx context.Context, server *http.Server, log *logrus.Logger) error {
	webQuit := make(chan error, 1)
	go func() {
		log.Infof("web server started on http://127.0.0.1%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			webQuit <- err
		}
		webQuit <- nil
	}()

	select {
	case err := <-webQuit:
		return err
	case <-ctx.Done():
	}

	log.Info("stopping web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// localURLs lists the addresses the server is reachable at
func localURLs(port int) ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := []string{fmt.Sprintf("  http://127.0.0.1:%d", port)}
	for _, v := range interfaces {
		if v.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := v.Addrs()
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
			continue
		}

		for _, z := range addrs {
			if ipRaw, ok := z.(*net.IPNet); !ok {
				_, _ = fmt.Fprintf(os.Stderr, "error decode addr %v\n", z)
				continue
			} else if ipRaw.IP.IsPrivate() && ipRaw.IP.To4() != nil {
				result = append(result, fmt.Sprintf("  http://%s:%d", ipRaw.IP.To4().String(), port))
			}
		}
	}
	return funk.UniqString(result), nil
}

// newRouter builds the web interface of src. staticDir, when not empty, is served under /static/.
func newRouter(src *source, tpl Template, staticDir string, log *logrus.Logger) (*gin.Engine, error) {
	indexTpl, err := template.New("index").Parse(tpl.Index)
	if err != nil {
		return nil, errors.Annotate(err, "index template")
	}
	treeTpl, err := template.New("tree").Parse(tpl.Tree)
	if err != nil {
		return nil, errors.Annotate(err, "tree template")
	}

	entries := src.entries
	if src.hostPaths {
		entries = relativize(entries)
	}
	files, dirs := manifest.Count(entries)

	webRouter := gin.New()
	if log.Level > logrus.InfoLevel {
		webRouter.Use(ginlogrus.Logger(log))
	}
	webRouter.Use(gin.Recovery())
	webRouter.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		c.Next()
	})

	webRouter.GET("/", func(c *gin.Context) {
		data := TemplateIndex{
			Title:     fmt.Sprintf("%s (%s)", product, src.name),
			Version:   gitVersion,
			Date:      gitDate,
			Source:    src.input,
			Label:     manifest.Label(entries),
			Files:     files,
			Dirs:      dirs,
			TotalSize: humanize.Bytes(uint64(manifest.TotalSize(entries))),
			Static:    staticDir != "",
		}
		if err := indexTpl.ExecuteTemplate(c.Writer, "index", data); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
		}
	})

	webRouter.GET("/manifest.json", func(c *gin.Context) {
		c.IndentedJSON(http.StatusOK, disk.NewDescriptor(entries, disk.Params{}))
	})

	webRouter.GET("/files/*path", func(c *gin.Context) {
		action := c.Param("path")

		fileInDisk, listing, err := manifest.Find(entries, action)
		if err != nil {
			c.String(http.StatusNotFound, err.Error())
			return
		}

		if fileInDisk != nil {
			if int64(len(fileInDisk.Content)) != fileInDisk.Size {
				c.String(http.StatusNotFound, fmt.Sprintf("%s has no contents", action))
				return
			}

			address, _, err := net.SplitHostPort(c.Request.RemoteAddr)
			if err != nil {
				address = c.Request.RemoteAddr
			}
			log.WithField("prefix", address).Infof("sending file '%s'", action)

			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", displayName(*fileInDisk)))
			c.Data(http.StatusOK, "application/octet-stream", fileInDisk.Content)
			return
		}

		data := TemplatesFiles{
			Title:   path.Join(src.name, action),
			Version: gitVersion,
			Date:    gitDate,
			BackwardURL: File{
				URL: parentURL(c.Request.URL.Path),
			},
			FilesOrDir: make([]File, 0, len(listing)),
		}

		for _, v := range listing {
			row := File{
				IsDir: v.IsDir(),
				Name:  displayName(v),
				URL:   url.PathEscape(v.Name),
				Date:  v.ModTime.Format("2006-01-02 15:04"),
				Attr:  v.Attr.String(),
			}
			if row.IsDir {
				row.URL += "/"
			} else {
				row.Size = humanize.Bytes(uint64(v.Size))
			}
			data.FilesOrDir = append(data.FilesOrDir, row)
		}

		if err := treeTpl.ExecuteTemplate(c.Writer, "tree", data); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
		}
	})

	if staticDir != "" {
		webRouter.Use(static.Serve("/static/", static.LocalFile(staticDir, true)))
	}

	return webRouter, nil
}

// parentURL is the directory above the listing at urlPath, with a trailing slash
func parentURL(urlPath string) string {
	parent := path.Dir(strings.TrimRight(urlPath, "/"))
	if !strings.HasSuffix(parent, "/") {
		parent += "/"
	}
	return parent
}
