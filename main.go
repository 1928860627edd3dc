package main

import "github.com/andresmejia3/assetcam/cmd"

func main() {
	cmd.Execute()
}
