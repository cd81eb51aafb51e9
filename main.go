package main

import "github.com/rlms-portal/forms-services/cmd"

func main() {
	cmd.Execute()
}
