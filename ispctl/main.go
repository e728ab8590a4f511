// Ispctl runs and inspects pipelines of simulated ISP blocks.
package main

import "github.com/sarchlab/ispcore/ispctl/cmd"

func main() {
	cmd.Execute()
}
