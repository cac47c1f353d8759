package main

import "github.com/jonthemediocre/secrets-agent-sub010/cmd/govern/cmd"

func main() {
	cmd.Execute()
}
