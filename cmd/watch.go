package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/brokkworkbench/core/pkg/classify"
	"github.com/brokkworkbench/core/pkg/project"
	"github.com/brokkworkbench/core/pkg/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a project directory and print classified change batches",
	Long: `Watch starts the File Watch Service over the project directory and
prints each EventBatch it produces, classified against the project's
tracked file set (§4.E/§4.G), until interrupted with Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := project.NewRoot(projectDir(cmd))
		if err != nil {
			return err
		}

		tracked, err := project.FileSet(root, project.LoadIgnoreRules(root))
		if err != nil {
			return err
		}

		svc, err := watch.NewForProject(root)
		if err != nil {
			return err
		}
		defer svc.Close()

		svc.AddListener(watch.ListenerFunc(func(batch watch.EventBatch) {
			cls := classify.Classify(batch, tracked)
			fmt.Printf("batch: %d file(s), overflow=%v, gitMeta=%v, trackedChanged=%v, significant=%v\n",
				len(batch.Files), batch.IsOverflowed, cls.GitMetadataChanged, cls.TrackedFilesChanged, cls.IsSignificant)
			for _, f := range batch.Files {
				fmt.Printf("  %s\n", f.RelPath())
			}
		}))

		ready := make(chan struct{})
		if err := svc.Start(ready); err != nil {
			return err
		}
		close(ready)

		fmt.Printf("watching %s (Ctrl-C to stop)\n", root.Abs())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		<-sigCh
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
