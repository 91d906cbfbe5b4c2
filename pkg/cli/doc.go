// Package cli renders zoocari command output: styled answer cards for
// the terminal and JSON or YAML for scripts.
//
//	card := cli.Card{Styles: cli.NewStyles(cli.DefaultTheme), Title: "Zoocari"}
//	fmt.Println(card.Render(80))
//
//	cli.Output(os.Stdout, reply, cli.FormatJSON)
package cli
