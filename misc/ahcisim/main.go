// Program ahcisim attaches the AHCI driver to a simulated controller built
// from a YAML topology and exercises the disks it finds.
package main

func main() {
	Execute()
}
