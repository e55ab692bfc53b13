package sidevent

import "syscall"

const errnoNoMedium = syscall.ENOMEDIUM
