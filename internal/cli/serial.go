package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vmtopo/internal/terminal"
)

// quitHint renders a control byte the way terminals print it: 0x11 is ^Q.
func quitHint(b byte) string {
	if b < 0x20 {
		return fmt.Sprintf("Ctrl-%c", b+'@')
	}
	return fmt.Sprintf("%q", b)
}

func newSerialCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serial <node>",
		Short: "Attach to a node's serial console",
		Long: `Attach the terminal to a node's serial console. Keystrokes go to the node
unmodified until the quit key (Ctrl-Q by default) is typed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			_, n, err := a.node(args[0])
			if err != nil {
				return err
			}
			c, err := a.client(n.Name)
			if err != nil {
				return err
			}
			id, err := c.ResolveInstance(ctx, n.Name)
			if err != nil {
				return err
			}
			sess, err := c.OpenConsole(ctx, id)
			if err != nil {
				return err
			}

			quit := byte(a.cfg.QuitByte)
			fmt.Fprintf(a.opts.Stderr, "connected to %s, %s to quit\r\n", n.Name, quitHint(quit))

			p := &terminal.Proxy{
				In:   a.opts.Stdin,
				Out:  a.opts.Stdout,
				Term: a.opts.Term,
				Quit: quit,
				Log:  a.log.WithField("node", n.Name),
			}
			return p.Run(ctx, sess)
		},
	}
}
