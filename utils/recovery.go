package utils

import (
	"fmt"
	"io/ioutil"
	"runtime"
	"strconv"
	"time"
)

var panicFilename = "panic_dump"

// MyRecover recovers a panicking goroutine, logs the stack and dumps it to
// a panic file. It must be deferred directly.
func MyRecover() {
	if err := recover(); err != nil {
		var buf [4096]byte
		n := runtime.Stack(buf[:], false)
		log.Errorf("Recovered from panic: %v\nStack Trace ==> %s", err, string(buf[:n]))
		_ = DumpPanicInfo(fmt.Sprintf("%v", err) + "\n" + string(buf[:n]))
	}
}

func DumpPanicInfo(info string) error {
	currentTime := time.Now()
	fileSuffix := currentTime.Format("20060102150405") + "_" + strconv.FormatInt(currentTime.Unix(), 10)
	fileName := panicFilename + "_" + fileSuffix
	log.Infof("Dumping panic info to %v...", fileName)
	err := ioutil.WriteFile(fileName, []byte(info), 0666)
	if err != nil {
		log.Errorf("Unable to write panic file %v", fileName)
		return err
	}
	return nil
}
