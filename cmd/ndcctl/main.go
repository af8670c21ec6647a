package main

import (
    "log"

    "github.com/spf13/cobra"

    ndccli "github.com/amirimatin/go-ndconsensus/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "ndcctl",
        Short:         "go-ndconsensus management CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    // Attach all engine commands from pkg/cli for reuse in services
    ndccli.AddAll(root)
    return root
}
