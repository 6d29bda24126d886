package supervisor

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

const procMeminfo = "/proc/meminfo"

// FreeMemoryKB reports available system memory from /proc/meminfo. Zero
// means unknown; the memory panic condition is skipped then, and the
// telemetry field reads zero on hosts without the proc file.
func FreeMemoryKB() uint64 {
	kb, _ := readMemAvailable(procMeminfo)
	return kb
}

func readMemAvailable(path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "MemAvailable:" {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb, true
	}
	return 0, false
}
