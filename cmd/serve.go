package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/freezeyt/freezeyt/internal/blog"
	"github.com/freezeyt/freezeyt/internal/fs/sitefs"
	"github.com/freezeyt/freezeyt/internal/logging"
)

type serveParams struct {
	content   string
	addr      string
	cacheSize int
}

func init() {
	var params serveParams

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the markdown blog",
		Long: `Serve the markdown blog found in the content directory.

Articles are read from <content>/articles/<slug>.md and images from
<content>/images. The extra files of the configuration, if there is one,
are served for paths that name no article.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger(cmd.ErrOrStderr())

			s := blog.New(params.content).WithLogger(log).WithCacheSize(params.cacheSize)

			if !defaultConfigMissing() {
				root, err := loadConfig()
				if err != nil {
					return err
				}

				static, err := sitefs.New(newExpander(root, log).Expand(root.ExtraFiles))
				if err != nil {
					return expansionError(err)
				}

				log.Infof("serving %d extra files", static.Len())
				s = s.WithStatic(static)
			}

			s, err := s.Init()
			if err != nil {
				return err
			}

			return listenAndServe(cmd.Context(), params.addr, s, log)
		},
	}

	serve.Flags().StringVar(&params.content, "content", "content", "blog content directory")
	serve.Flags().StringVar(&params.addr, "addr", "localhost:8000", "address to listen on")
	serve.Flags().IntVar(&params.cacheSize, "cache-size", 128, "number of rendered articles kept in memory")

	RootCommand.AddCommand(serve)
}

// listenAndServe runs the server until the context is done.
func listenAndServe(ctx context.Context, addr string, handler http.Handler, log *logging.Logger) error {
	router := http.NewServeMux()
	router.Handle("GET /metrics", promhttp.Handler())
	router.Handle("/", handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
