package main

import "github.com/casedesk/smechat/internal/cli"

func main() {
	cli.Execute()
}
