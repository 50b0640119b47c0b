// Widgetkit builds embeddable widget bundles incrementally.
package main

import "github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/cli"

func main() {
	cli.Execute()
}
