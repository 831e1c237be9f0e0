package main

import "reviewtrends/internal/app"

func main() {
	app.Main()
}
