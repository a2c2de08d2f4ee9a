package main

import "selfrise/cmd/xp/root"

func main() {
	root.Execute()
}
