// ted-harvester searches the EU Tenders Electronic Daily notice API and
// extracts procurement data into spreadsheet form.
package main

import "github.com/procurio/ted-harvester/cmd"

func main() {
	cmd.Execute()
}
